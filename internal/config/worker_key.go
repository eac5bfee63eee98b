package config

type WorkerKeyStruct struct {
	PersistResultsQueue    string
	PersistViolationsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistResultsQueue:    "persist_results_queue",
	PersistViolationsQueue: "persist_violations_queue",
}
