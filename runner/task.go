package runner

// Task is one unit of work handed to a checked-out worker.
type Task struct {
	taskid   string
	typeName string
	message  []byte
}

func (t *Task) Id() string      { return t.taskid }
func (t *Task) Type() string    { return t.typeName }
func (t *Task) Payload() []byte { return t.message }

func NewTask(message []byte, typeName string) *Task {
	return &Task{
		typeName: typeName,
		message:  message,
	}
}

func (t *Task) WithTaskId(id string) *Task {
	t.taskid = id
	return t
}
