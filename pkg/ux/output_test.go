// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func newTestPrinter(mode Mode) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return &Printer{Out: &out, Err: &errOut, Mode: mode}, &out, &errOut
}

func TestPrinter_PlainBlocks(t *testing.T) {
	p, out, errOut := newTestPrinter(ModePlain)

	p.Success("The environment has been started.")
	p.Error("There is no running environment.")
	p.Warning("Unable to issue certificates.")
	p.Note("Run origami start.")

	if got := out.String(); got != "[OK] The environment has been started.\n" {
		t.Errorf("stdout = %q", got)
	}
	want := "[ERROR] There is no running environment.\n" +
		"[WARNING] Unable to issue certificates.\n" +
		"[NOTE] Run origami start.\n"
	if got := errOut.String(); got != want {
		t.Errorf("stderr = %q, want %q", got, want)
	}
}

func TestPrinter_TitleSkippedInPlainMode(t *testing.T) {
	p, out, _ := newTestPrinter(ModePlain)
	p.Title("Environments")
	if out.Len() != 0 {
		t.Errorf("plain Title wrote %q", out.String())
	}

	p, out, _ = newTestPrinter(ModeRich)
	p.Title("Environments")
	if !strings.Contains(out.String(), "Environments") {
		t.Errorf("rich Title = %q", out.String())
	}
}

func TestPrinter_RichBlocksKeepPrefix(t *testing.T) {
	p, out, _ := newTestPrinter(ModeRich)
	p.Success("done")
	if !strings.Contains(out.String(), PrefixOK) || !strings.Contains(out.String(), "done") {
		t.Errorf("rich Success = %q", out.String())
	}
}

func TestPrinter_PlainTable(t *testing.T) {
	p, out, _ := newTestPrinter(ModePlain)
	p.Table([]string{"NAME", "TYPE"}, [][]string{{"shop", "sylius"}, {"blog", "symfony"}})

	want := "NAME\tTYPE\nshop\tsylius\nblog\tsymfony\n"
	if got := out.String(); got != want {
		t.Errorf("table = %q, want %q", got, want)
	}
}

func TestPrinter_RichTable(t *testing.T) {
	p, out, _ := newTestPrinter(ModeRich)
	p.Table([]string{"NAME", "TYPE"}, [][]string{{"shop", "sylius"}})

	got := out.String()
	for _, s := range []string{"NAME", "TYPE", "shop", "sylius"} {
		if !strings.Contains(got, s) {
			t.Errorf("rich table missing %q:\n%s", s, got)
		}
	}
}

func TestDetectMode_File(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if got := DetectMode(f); got != ModePlain {
		t.Errorf("DetectMode(regular file) = %v, want ModePlain", got)
	}
}
