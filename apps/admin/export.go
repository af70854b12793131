package main

import (
	"bytes"
	"context"
	"io"
	"net/mail"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/core/review"
)

// cliPrincipal acts on behalf of whoever runs the CLI.
var cliPrincipal = core.Principal{ID: "admin-cli", Role: core.RoleAdmin}

var exportContentTypes = map[string]string{
	review.FormatCSV:  "text/csv",
	review.FormatJSON: "application/json",
}

// export writes the reviews to path (stdout when empty) and optionally emails them to emailTo.
func (cli *commandLine) export(ctx context.Context, format, path, emailTo string) error {
	app, err := cli.getApp(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := app.Reviews.Export(ctx, cliPrincipal, format, &buf); err != nil {
		return err
	}
	exportedAt := time.Now().UTC().Truncate(time.Second)

	if path == "" {
		if _, err := io.Copy(cli.out, bytes.NewReader(buf.Bytes())); err != nil {
			return errors.Wrap(err, "writing export")
		}
	} else if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrap(err, "writing export")
	}

	if emailTo == "" {
		return nil
	}
	to, err := mail.ParseAddress(emailTo)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "email", Error: "email must be a valid email address"})
	}
	counts, err := app.Reviews.Counts(ctx)
	if err != nil {
		return err
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{*to},
		Subject:      "Reviews export",
		TemplateName: "reviews_export",
		TemplateData: map[string]interface{}{
			"Count":      counts.Approved,
			"ExportedAt": exportedAt.Format(time.RFC3339),
		},
	}
	if err := msg.Attach(&buf, "reviews."+format, exportContentTypes[format]); err != nil {
		return errors.Wrap(err, "attaching export")
	}
	cli.mail.SendMessages(msg)
	return nil
}
