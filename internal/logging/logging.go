// Package logging configures the process wide apex logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	"github.com/pkg/errors"
)

// Init sets the level and handler of the default logger. Output goes to
// stderr so that stdout stays free for data.
func Init(level, format string) error {
	return InitWriter(os.Stderr, level, format)
}

// InitWriter is Init with an explicit output.
func InitWriter(w io.Writer, level, format string) error {
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}

	switch strings.ToLower(format) {
	case "", "cli":
		log.SetHandler(cli.New(w))
	case "text":
		log.SetHandler(text.New(w))
	case "json":
		log.SetHandler(json.New(w))
	default:
		return errors.Errorf("invalid log format %q", format)
	}

	log.SetLevel(lvl)
	return nil
}
