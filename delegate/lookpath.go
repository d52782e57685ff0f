// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package delegate

import (
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"v.io/x/lib/lookpath"
)

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return env
}

// CheckTools verifies that every named executable can be found in $PATH.  The
// returned error lists all the missing tools.
func CheckTools(names ...string) error {
	env := environ()
	var missing []string
	for _, name := range names {
		if _, err := lookpath.Look(env, name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.E(errors.Unavailable, "required tools not found in $PATH: "+strings.Join(missing, ", "))
	}
	return nil
}
