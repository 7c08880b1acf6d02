// SPDX-License-Identifier: MIT
package main

import "github.com/skaphos/gitlab-sync/cmd/gitlabsync"

var execute = gitlabsync.Execute

func main() {
	execute()
}
