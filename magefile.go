//go:build mage

// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binaryName = "pvdash"
	modulePath = "github.com/marshm100/Robinhood-Dashboard-v0.1-sub001"
)

var ldflags = fmt.Sprintf("-X %[1]s/common.commitHash=$COMMIT_HASH -X %[1]s/common.buildDate=$BUILD_DATE", modulePath)

// GOEXE overrides the go executable
var goexe = "go"

func init() {
	if exe := os.Getenv("GOEXE"); exe != "" {
		goexe = exe
	}
}

var Default = Build

// Build the pvdash binary with version information
func Build() error {
	fmt.Println("Building...")
	return sh.RunWith(versionEnv(), goexe, append([]string{"build", "-o", binaryName, "-ldflags", ldflags}, buildFlags()...)...)
}

// Install pvdash into GOBIN
func Install() error {
	return sh.RunWith(versionEnv(), goexe, append([]string{"install", "-ldflags", ldflags}, buildFlags()...)...)
}

// Clean removes build artifacts
func Clean() {
	fmt.Println("Cleaning...")
	for _, fn := range []string{binaryName, "coverage.out"} {
		os.RemoveAll(fn)
	}
}

// Check runs the formatters, vet and the race enabled tests
func Check() {
	mg.Deps(Fmt, Vet)
	mg.Deps(TestRace)
}

// Test runs the unit tests
func Test() error {
	fmt.Println("Go Test")
	return runQuiet(goexe, "test", "./...")
}

// TestRace runs the unit tests with the race detector
func TestRace() error {
	fmt.Println("Go Test Race")
	return runQuiet(goexe, "test", "-race", "./...")
}

// Cover writes coverage.out and opens the html report
func Cover() error {
	if err := sh.Run(goexe, "test", "-coverprofile=coverage.out", "-covermode=count", "./..."); err != nil {
		return err
	}
	return sh.Run(goexe, "tool", "cover", "-html=coverage.out")
}

// Vet runs go vet
func Vet() error {
	fmt.Println("Go Vet")
	if err := sh.Run(goexe, "vet", "./..."); err != nil {
		return fmt.Errorf("error running go vet: %w", err)
	}
	return nil
}

// Fmt reports files that are not gofmt clean
func Fmt() error {
	fmt.Println("Go Format")

	dirs, err := packageDirs()
	if err != nil {
		return err
	}

	failed := false
	for _, dir := range dirs {
		files, err := filepath.Glob(filepath.Join(dir, "*.go"))
		if err != nil {
			return err
		}
		if len(files) == 0 {
			continue
		}
		out, err := sh.Output("gofmt", append([]string{"-l"}, files...)...)
		if err != nil {
			return err
		}
		if out != "" {
			fmt.Println(out)
			failed = true
		}
	}

	if failed {
		return errors.New("improperly formatted go files")
	}
	return nil
}

func buildFlags() []string {
	if runtime.GOOS == "windows" {
		return []string{"-buildmode", "exe"}
	}
	return nil
}

func versionEnv() map[string]string {
	hash, _ := sh.Output("git", "rev-parse", "--short", "HEAD")
	return map[string]string{
		"COMMIT_HASH": hash,
		"BUILD_DATE":  time.Now().Format("2006-01-02T15:04:05Z0700"),
	}
}

func runQuiet(cmd string, args ...string) error {
	if mg.Verbose() {
		return sh.Run(cmd, args...)
	}
	output, err := sh.Output(cmd, args...)
	if err != nil {
		fmt.Fprint(os.Stderr, output)
	}
	return err
}

// packageDirs lists the module's package directories relative to the root
func packageDirs() ([]string, error) {
	s, err := sh.Output(goexe, "list", "./...")
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, pkg := range strings.Split(s, "\n") {
		if pkg == "" {
			continue
		}
		dirs = append(dirs, "."+strings.TrimPrefix(pkg, modulePath))
	}
	return dirs, nil
}
