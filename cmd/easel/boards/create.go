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

package boards

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/easel-team/easel/api/types"
)

var createIsPrivate bool

func newCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create [name]",
		Short: "Create a new board",
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := types.CreateBoardFields{IsPrivate: createIsPrivate}
			if len(args) > 0 {
				fields.Name = args[0]
			}

			var board types.Board
			if err := call(http.MethodPost, "/api/boards", fields, &board); err != nil {
				return err
			}

			cmd.Printf("created board %s\n", board.ID)
			return nil
		},
	}
}

func init() {
	cmd := newCreateCommand()
	cmd.Flags().BoolVar(
		&createIsPrivate,
		"private",
		false,
		"Restrict joining the board to its owner",
	)
	SubCmd.AddCommand(cmd)
}
