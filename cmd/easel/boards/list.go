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
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/easel-team/easel/api/types"
)

var listOutput string

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List the boards you own",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result struct {
				Boards []*types.Board `json:"boards"`
			}
			if err := call(http.MethodGet, "/api/boards", nil, &result); err != nil {
				return err
			}

			return printBoards(cmd, listOutput, result.Boards)
		},
	}
}

func printBoards(cmd *cobra.Command, output string, boards []*types.Board) error {
	switch output {
	case "":
		tw := table.NewWriter()
		tw.Style().Options.DrawBorder = false
		tw.Style().Options.SeparateColumns = false
		tw.Style().Options.SeparateFooter = false
		tw.Style().Options.SeparateHeader = false
		tw.Style().Options.SeparateRows = false
		tw.AppendHeader(table.Row{
			"ID",
			"NAME",
			"PRIVATE",
			"CREATED AT",
		})
		for _, board := range boards {
			tw.AppendRow(table.Row{
				board.ID,
				board.Name,
				board.IsPrivate,
				board.CreatedAt.Format(time.RFC3339),
			})
		}
		cmd.Printf("%s\n", tw.Render())
	case "json":
		jsonOutput, err := json.MarshalIndent(boards, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		cmd.Println(string(jsonOutput))
	default:
		return fmt.Errorf("unknown output format: %s", output)
	}

	return nil
}

func init() {
	cmd := newListCommand()
	cmd.Flags().StringVarP(
		&listOutput,
		"output",
		"o",
		"",
		"Output format: json",
	)
	SubCmd.AddCommand(cmd)
}
