package system

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/sdjournal"
	portalboxd "github.com/portalbox/portalboxd/pkg"
	log "github.com/sirupsen/logrus"
)

// journalBacklog is how many existing lines a new tail replays before
// following live entries.
const journalBacklog = 50

var _ portalboxd.JournalReader = JournalReader{}

func NewJournalReader(config portalboxd.ServerConfig) JournalReader {
	return JournalReader{
		config: config,
	}
}

type JournalReader struct {
	config portalboxd.ServerConfig
}

// GetJournalChan follows the systemd journal for one unit. The tail runs
// until the returned cancel function is called.
func (t JournalReader) GetJournalChan(unit string) (context.CancelFunc, chan string, error) {
	ctx, cancel := context.WithCancel(context.Background())

	out := make(chan string, 10)

	go func() {
		defer close(out)

		j, err := sdjournal.NewJournal()
		if err != nil {
			log.WithError(err).Error("failed to open systemd journal")
			return
		}
		defer j.Close()

		if err := j.AddMatch(fmt.Sprintf("_SYSTEMD_UNIT=%s", unit)); err != nil {
			log.WithError(err).Errorf("failed to match journal unit %s", unit)
			return
		}

		if err := j.SeekTail(); err != nil {
			log.WithError(err).Error("failed to seek journal tail")
			return
		}

		if _, err := j.PreviousSkip(journalBacklog); err != nil {
			log.WithError(err).Error("failed to rewind journal backlog")
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			default:
				i, err := j.Next()
				if err != nil {
					log.WithError(err).Warn("journal read failed")
					continue
				}

				if i == 0 {
					time.Sleep(time.Second)
					continue
				}

				entry, err := j.GetEntry()
				if err != nil {
					continue
				}

				out <- entry.Fields["MESSAGE"]
			}
		}
	}()
	return cancel, out, nil
}
