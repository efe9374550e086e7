package domain

type TaskOutcome string

const (
	OutcomeProcessed       TaskOutcome = "processed"
	OutcomeSkippedFresh    TaskOutcome = "skipped_fresh"
	OutcomeSkippedRecorded TaskOutcome = "skipped_recorded"
	OutcomeErroredFetch    TaskOutcome = "errored_fetch"
	OutcomeErroredNoData   TaskOutcome = "errored_no_data"
	OutcomeErroredPersist  TaskOutcome = "errored_persist"
)
