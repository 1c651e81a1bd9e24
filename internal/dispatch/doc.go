// Package dispatch implements the reminder pipeline: the eligibility filter
// picks draft occurrences that may be sent now, the batch builder groups
// them per recipient, the executor sends each batch through the channel
// session in order, and the reconciler moves occurrences to sent only for
// recipients whose send was confirmed.
//
// Service ties the stages together behind the three operations the UI
// drives: Preview, Run and Apply.
package dispatch
