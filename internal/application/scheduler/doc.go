// Package scheduler triggers pipeline executions from templates that carry
// a cron schedule. Cron entries are reconciled against the template store
// on an interval, so schedule changes take effect without a restart.
package scheduler
