package otp

import (
	"context"

	"github.com/backoffice-suite/boar/pkg/erp"
)

// ERPDirectory resolves employees against hr.employee by work email.
type ERPDirectory struct {
	client *erp.Client
}

// NewERPDirectory wraps an ERP client as an EmployeeDirectory.
func NewERPDirectory(client *erp.Client) *ERPDirectory {
	return &ERPDirectory{client: client}
}

// FindByWorkEmail returns (0, "", nil) when no employee matches.
func (d *ERPDirectory) FindByWorkEmail(ctx context.Context, email string) (int64, string, error) {
	records, err := d.client.SearchRead(ctx, "hr.employee",
		[]interface{}{[]interface{}{"work_email", "=", email}},
		[]string{"id", "name"},
		&erp.SearchOptions{Limit: 1})
	if err != nil {
		return 0, "", err
	}
	if len(records) == 0 {
		return 0, "", nil
	}
	return records[0].Int("id"), records[0].Str("name"), nil
}
