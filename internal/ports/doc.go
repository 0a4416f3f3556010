// Package ports declares the interfaces between the orchestration core and
// its adapters: persistence stores, the event bus, step executors, and
// metrics. Implementations live under pkg/adapters.
package ports
