package journal

import "time"

// retry re-runs fn up to numTries times, sleeping between attempts. It
// returns the last error if every attempt failed.
type retry struct {
	sleepDuration time.Duration
	numTries      int
}

func newRetry(numTries int, sleepDuration time.Duration) *retry {
	return &retry{
		sleepDuration: sleepDuration,
		numTries:      numTries,
	}
}

func (r *retry) do(fn func() error) error {
	var err error
	for i := 0; i < r.numTries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		time.Sleep(r.sleepDuration)
	}

	return err
}
