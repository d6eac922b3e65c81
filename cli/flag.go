package cli

import (
	"strings"

	"github.com/ka2n/litrev/insights"
	"github.com/morikuni/failure/v2"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
)

// sourceFlag accepts only the known insight sources.
type sourceFlag struct {
	IsSet bool
	Value string
}

// String implements pflag.Value.
func (s *sourceFlag) String() string {
	return s.Value
}

func (s *sourceFlag) Set(value string) error {
	if !lo.Contains(insights.Sources, value) {
		return failure.New(InvalidSource,
			failure.Message("source must be one of: "+strings.Join(insights.Sources, ", ")),
			failure.Context{"source": value},
		)
	}
	s.Value = value
	s.IsSet = true
	return nil
}

func (s *sourceFlag) Type() string {
	return "source"
}

var _ pflag.Value = &sourceFlag{}
