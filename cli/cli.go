// Copyright 2024 Andrew Dunstall. All rights reserved.
//
// Use of this source code is governed by a MIT style license that can be
// found in the LICENSE file.

package cli

import (
	"os"
)

// Start runs the swim command selected by the process arguments.
func Start() error {
	cmd := NewCommand()
	cmd.SetArgs(os.Args[1:])
	return cmd.Execute()
}
