// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
)

// readTokens parses whitespace-separated unsigned 32-bit token ids.
func readTokens(r io.Reader) ([]uint32, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	var out []uint32
	for sc.Scan() {
		v, err := strconv.ParseUint(sc.Text(), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", len(out), err)
		}
		out = append(out, uint32(v))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func readTokenFile(path string) ([]uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readTokens(bufio.NewReader(f))
}
