package programmer

// Job is a running or finished asynchronous operation.
type Job struct {
	op     Operation
	done   chan struct{}
	result Result
}

// Op returns the operation the job runs.
func (j *Job) Op() Operation {
	return j.op
}

// Done is closed when the job has ended and its result is available.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job ends and returns its result.
func (j *Job) Wait() Result {
	<-j.done
	return j.result
}
