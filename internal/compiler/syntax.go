package compiler

import (
	"errors"
	"fmt"

	"github.com/evanw/esbuild/pkg/api"
)

var ErrInvalidScript = errors.New("compiler: generated script does not parse")

// Check parses src as JavaScript and reports the first syntax error.
func Check(src string) error {
	res := api.Transform(src, api.TransformOptions{
		Loader:   api.LoaderJS,
		LogLevel: api.LogLevelSilent,
	})
	if len(res.Errors) == 0 {
		return nil
	}
	msg := res.Errors[0]
	if loc := msg.Location; loc != nil {
		return fmt.Errorf("%w: line %d: %s", ErrInvalidScript, loc.Line, msg.Text)
	}
	return fmt.Errorf("%w: %s", ErrInvalidScript, msg.Text)
}
