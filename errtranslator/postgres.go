package errtranslator

import (
	"regexp"
	"strings"
)

var postgresErrCodes = map[string]Kind{
	"23505": Unique,
	"23514": Check,
	"23502": NotNull,
	"22001": TooLong,
	"22003": OutOfRange,
}

var postgresKeyDetail = regexp.MustCompile(`Key \(([^)]+)\)=`)

type PostgresErrTranslator struct{}

type PostgresErr struct {
	Code       string `json:"Code"`
	Severity   string `json:"Severity"`
	Message    string `json:"Message"`
	Detail     string `json:"Detail"`
	Table      string `json:"Table"`
	Column     string `json:"Column"`
	Constraint string `json:"Constraint"`
}

func (p *PostgresErrTranslator) Translate(err error) error {
	var postgresErr PostgresErr
	if !decode(err, &postgresErr) {
		return err
	}

	kind, ok := postgresErrCodes[postgresErr.Code]
	if !ok {
		return err
	}

	rejection := &Rejection{
		Kind:       kind,
		Code:       postgresErr.Code,
		Table:      postgresErr.Table,
		Column:     postgresErr.Column,
		Constraint: postgresErr.Constraint,
		Message:    postgresErr.Message,
		Err:        err,
	}

	if rejection.Column == "" {
		if m := postgresKeyDetail.FindStringSubmatch(postgresErr.Detail); m != nil {
			rejection.Column = strings.TrimSpace(strings.SplitN(m[1], ",", 2)[0])
		}
	}

	rejection.PrimaryKey = kind == Unique && (rejection.Column == "id" || strings.HasSuffix(rejection.Constraint, "_pkey"))
	return rejection
}
