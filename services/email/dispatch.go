package emailsvc

import (
	"fmt"
	"net/mail"
	"sync"

	"github.com/trezcool/coursereview/core"
)

// dispatcher renders messages and delivers the deliverable ones in the background.
type dispatcher struct {
	logger     core.Logger
	subjPrefix string
	pending    *sync.WaitGroup
}

func newDispatcher(conf *core.Config, logger core.Logger) dispatcher {
	return dispatcher{
		logger:     logger,
		subjPrefix: "[" + conf.AppName + "] ",
		pending:    new(sync.WaitGroup),
	}
}

// ready renders msg and reports whether it has someone to go to and something to say.
func (d dispatcher) ready(msg *core.EmailMessage) bool {
	if err := msg.Render(); err != nil {
		d.logger.Error(fmt.Sprintf("rendering email %q: %v", msg.TemplateName, err), err)
		return false
	}
	return msg.HasRecipients() && (msg.HasContent() || msg.HasAttachments())
}

func (d dispatcher) dispatch(messages []*core.EmailMessage, deliver func(msg core.EmailMessage)) {
	for _, msg := range messages {
		d.pending.Add(1)
		go func() {
			defer d.pending.Done()
			if d.ready(msg) {
				deliver(*msg)
			}
		}()
	}
}

// Wait blocks until every message handed to SendMessages has been delivered or dropped.
func (d dispatcher) Wait() { d.pending.Wait() }

// fromAddress parses conf.DefaultFromEmail, e.g. `Course Review <noreply@example.com>`.
func fromAddress(conf *core.Config) mail.Address {
	addr, err := mail.ParseAddress(conf.DefaultFromEmail)
	if err != nil {
		return mail.Address{Name: conf.AppName, Address: conf.DefaultFromEmail}
	}
	return *addr
}
