// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/mstreek/pakarc/cli"
)

func main() {
	os.Exit(cli.Main(os.Args[1:]))
}
