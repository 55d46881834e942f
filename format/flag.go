// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package format

import (
	"strings"

	"github.com/spf13/pflag"
)

// SchemeFlag is a pflag.Value implementation that stores a compression
// scheme.
type SchemeFlag Scheme

var _ pflag.Value = (*SchemeFlag)(nil)

func (sf *SchemeFlag) String() string { return Scheme(*sf).String() }

// Set implements pflag.Value.
func (sf *SchemeFlag) Set(v string) error {
	s, err := ParseScheme(v)
	if err != nil {
		return err
	}
	*sf = SchemeFlag(s)
	return nil
}

// Type implements pflag.Value.
func (sf *SchemeFlag) Type() string { return "format.Scheme" }

// Value returns the scheme held by this flag.
func (sf SchemeFlag) Value() Scheme { return Scheme(sf) }

// SchemeFlagValues returns the list of possible values for a SchemeFlag.
func SchemeFlagValues() string {
	names := make([]string, 0, len(schemeNames))
	for s := Scheme(0); s < schemeMax; s++ {
		names = append(names, s.String())
	}
	return strings.Join(names, ", ")
}
