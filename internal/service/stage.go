package service

// Stage is the position of a request in the recommendation pipeline.
// Transitions are strictly forward: received, retrieving, formatting, generating, reconciling,
// then completed or errored.
type Stage string

// Pipeline stages.
const (
	StageReceived    Stage = "received"
	StageRetrieving  Stage = "retrieving"
	StageFormatting  Stage = "formatting"
	StageGenerating  Stage = "generating"
	StageReconciling Stage = "reconciling"
	StageCompleted   Stage = "completed"
	StageErrored     Stage = "errored"
)
