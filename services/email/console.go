package emailsvc

import (
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/coursereview/core"
)

type consoleService struct {
	dispatcher
	from mail.Address
	out  *log.Logger // nil discards
}

var _ core.EmailService = (*consoleService)(nil)

// NewConsoleService returns an EmailService printing MIME messages to the standard logger.
func NewConsoleService(conf *core.Config, logger core.Logger) core.EmailService {
	return &consoleService{
		dispatcher: newDispatcher(conf, logger),
		from:       fromAddress(conf),
		out:        log.Default(),
	}
}

func (svc *consoleService) SendMessages(messages ...*core.EmailMessage) {
	svc.dispatch(messages, svc.print)
}

func (svc *consoleService) print(msg core.EmailMessage) {
	raw, err := svc.compose(msg)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("composing email %q: %v", msg.Subject, err), err)
		return
	}
	if svc.out != nil {
		svc.out.Println(raw)
	}
}

// compose renders msg as a MIME message: a multipart/alternative body,
// wrapped in multipart/mixed when there are attachments.
func (svc *consoleService) compose(msg core.EmailMessage) (string, error) {
	var sb strings.Builder
	header := []string{
		"From: " + svc.from.String(),
		"MIME-Version: 1.0",
		"Date: " + time.Now().Format(time.RFC1123Z),
		"Subject: " + svc.subjPrefix + msg.Subject,
		"To: " + joinAddresses(msg.To),
	}
	if len(msg.Cc) > 0 {
		header = append(header, "CC: "+joinAddresses(msg.Cc))
	}
	if len(msg.Bcc) > 0 {
		header = append(header, "BCC: "+joinAddresses(msg.Bcc))
	}

	alt := multipart.NewWriter(&sb)
	var mixed *multipart.Writer
	if msg.HasAttachments() {
		mixed = multipart.NewWriter(&sb)
		header = append(header, "Content-Type: multipart/mixed; boundary="+mixed.Boundary())
	} else {
		header = append(header, "Content-Type: multipart/alternative; boundary="+alt.Boundary())
	}
	sb.WriteString(strings.Join(header, "\r\n") + "\r\n\r\n")

	if mixed != nil {
		if _, err := mixed.CreatePart(textproto.MIMEHeader{"Content-Type": {"multipart/alternative; boundary=" + alt.Boundary()}}); err != nil {
			return "", errors.Wrap(err, "creating alternative part")
		}
	}
	if err := writePart(alt, textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}}, msg.TextContent); err != nil {
		return "", err
	}
	if msg.HTMLContent != "" {
		if err := writePart(alt, textproto.MIMEHeader{"Content-Type": {"text/html; charset=utf-8"}}, msg.HTMLContent); err != nil {
			return "", err
		}
	}
	if err := alt.Close(); err != nil {
		return "", err
	}
	if mixed == nil {
		return sb.String(), nil
	}

	for _, at := range msg.Attachments {
		h := textproto.MIMEHeader{
			"Content-Type":              {at.ContentType},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", at.Filename)},
		}
		if err := writePart(mixed, h, at.Content.String()); err != nil {
			return "", err
		}
	}
	if err := mixed.Close(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func writePart(w *multipart.Writer, h textproto.MIMEHeader, content string) error {
	part, err := w.CreatePart(h)
	if err != nil {
		return errors.Wrapf(err, "creating %s part", h.Get("Content-Type"))
	}
	_, err = io.WriteString(part, content+"\r\n")
	return err
}

func joinAddresses(addrs []mail.Address) string {
	strs := make([]string, len(addrs))
	for i, a := range addrs {
		strs[i] = a.String()
	}
	return strings.Join(strs, ", ")
}

// ConsoleServiceMock delivers synchronously without output and records what it delivered.
type ConsoleServiceMock struct {
	consoleService
	mu   sync.Mutex
	sent []core.EmailMessage
}

func NewConsoleServiceMock(conf *core.Config, logger core.Logger) *ConsoleServiceMock {
	return &ConsoleServiceMock{
		consoleService: consoleService{
			dispatcher: newDispatcher(conf, logger),
			from:       fromAddress(conf),
		},
	}
}

func (svc *ConsoleServiceMock) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		if !svc.ready(msg) {
			continue
		}
		if _, err := svc.compose(*msg); err != nil {
			svc.logger.Error(fmt.Sprintf("composing email %q: %v", msg.Subject, err), err)
			continue
		}
		svc.mu.Lock()
		svc.sent = append(svc.sent, *msg)
		svc.mu.Unlock()
	}
}

// SentMessages returns a copy of the messages sent so far.
func (svc *ConsoleServiceMock) SentMessages() []core.EmailMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return append([]core.EmailMessage(nil), svc.sent...)
}

func (svc *ConsoleServiceMock) Reset() {
	svc.mu.Lock()
	svc.sent = nil
	svc.mu.Unlock()
}
