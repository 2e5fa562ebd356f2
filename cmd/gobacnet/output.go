// Copyright 2026 KB-perByte
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// printTable writes rows as a plain aligned table to stdout.
func printTable(headers []string, rows [][]string) {
	printTableTo(os.Stdout, headers, rows)
}

func printTableTo(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, h := range headers {
		fmt.Fprintf(w, "%-*s ", widths[i], h)
	}
	fmt.Fprintln(w)

	for i := range headers {
		fmt.Fprint(w, strings.Repeat("-", widths[i]), " ")
	}
	fmt.Fprintln(w)

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(w, "%-*s ", widths[i], cell)
			}
		}
		fmt.Fprintln(w)
	}
}

// printCSV writes rows as comma-separated lines.
func printCSV(headers []string, rows [][]string) {
	fmt.Println(strings.Join(headers, ","))
	for _, row := range rows {
		fmt.Println(strings.Join(row, ","))
	}
}

// printKeyValue writes aligned key-value pairs in the given order.
func printKeyValue(pairs map[string]string, order []string) {
	maxKeyLen := 0
	for _, key := range order {
		if len(key) > maxKeyLen {
			maxKeyLen = len(key)
		}
	}
	for _, key := range order {
		if val, ok := pairs[key]; ok {
			fmt.Printf("%-*s: %s\n", maxKeyLen, key, val)
		}
	}
}

// jsonString quotes a string for hand-built JSON lines.
func jsonString(s string) string {
	return fmt.Sprintf("%q", s)
}
