//go:build !unix

package input

import "os"

func pollableStdin() (*os.File, func()) {
	return os.Stdin, nil
}
