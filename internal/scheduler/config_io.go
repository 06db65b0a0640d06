package scheduler

import (
	"fmt"
	"os"

	"bufferbridge/internal/errs"
)

func readConfigFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Config("read_file", fmt.Errorf("%s: %w", path, err))
	}
	return data, nil
}
