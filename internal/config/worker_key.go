package config

type WorkerKeyStruct struct {
	PersistProgressQueue string
	// PersistProgressDead collects progress jobs that kept failing.
	PersistProgressDead  string
	PersistAttemptsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistProgressQueue: "persist_progress_queue",
	PersistProgressDead:  "persist_progress_dead",
	PersistAttemptsQueue: "persist_attempts_queue",
}
