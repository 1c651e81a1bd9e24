// Package domain defines the entities the dispatch pipeline reads and writes:
// task occurrences (one dated instance of a maintenance task) and recipients
// (employees who receive reminders). It contains validation and small helpers
// for the calendar-date and wall-clock fields, but no storage or transport code.
package domain
