package config

type WorkerKeyStruct struct {
	PersistProctorEventsQueue string
	SessionActivityQueue      string
}

var WorkerKey = &WorkerKeyStruct{
	PersistProctorEventsQueue: "persist_proctor_events_queue",
	SessionActivityQueue:      "session_activity_queue",
}
