/*
 * Copyright 2024 The Easel Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package boards provides board management subcommands of the Easel CLI,
// thin wrappers over the server's management API.
package boards

import (
	"github.com/spf13/cobra"
)

var (
	serverAddr string
	authToken  string
)

// SubCmd is the root of the board management subcommands.
var SubCmd = &cobra.Command{
	Use:   "boards",
	Short: "Manage boards",
}

func init() {
	SubCmd.PersistentFlags().StringVar(
		&serverAddr,
		"addr",
		"http://localhost:8080",
		"Address of the Easel server",
	)
	SubCmd.PersistentFlags().StringVar(
		&authToken,
		"token",
		"",
		"Bearer token of the board owner",
	)
}
