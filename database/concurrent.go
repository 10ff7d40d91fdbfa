package database

import "golang.org/x/sync/errgroup"

// ConcurrentMap applies f to every input concurrently and returns the
// outputs in input order. The first error cancels the whole batch.
// limit <= 0 means no concurrency limit.
func ConcurrentMap[In any, Out any](inputs []In, limit int, f func(In) (Out, error)) ([]Out, error) {
	var eg errgroup.Group
	if limit > 0 {
		eg.SetLimit(limit)
	}

	outputs := make([]Out, len(inputs))
	for i := range inputs {
		i := i
		in := inputs[i]
		eg.Go(func() error {
			out, err := f(in)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}
