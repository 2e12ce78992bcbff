// Package inifile provides an INI parser/writer that preserves the textual
// order of sections, keys, comments, and blank lines across a
// load-edit-save round trip
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package inifile_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/dac1976/corelib-go/inifile"
)

const sampleIni = `; I am an opening comment.

[Section1]
; I am a comment in a section.
Section1_Key1=Section1_Value1
Section1_Key2=Section1_Value2
Section1_Key3=Section1_Value3

[Section2]
Section2_Key1=Section2_Value1
Section2_Key2=Section2_Value2
; I am also a comment in a section.
Section2_Key3=666
; I am yet another comment in a section.
`

var _ = Describe("IniFile", func() {
	var f *inifile.IniFile

	BeforeEach(func() {
		f = inifile.New()
		Expect(f.LoadString(sampleIni)).To(Succeed())
	})

	It("preserves comment and blank-line ordering across a round trip", func() {
		Expect(f.String()).To(Equal(sampleIni))
	})

	It("lists sections and keys in file order", func() {
		Expect(f.GetSections()).To(Equal([]string{"Section1", "Section2"}))
		Expect(f.GetSection("Section1")).To(Equal([]inifile.KeyValue{
			{Key: "Section1_Key1", Value: "Section1_Value1"},
			{Key: "Section1_Key2", Value: "Section1_Value2"},
			{Key: "Section1_Key3", Value: "Section1_Value3"},
		}))
		Expect(f.GetSection("NoSuchSection")).To(BeEmpty())
	})

	It("reads typed values with defaults", func() {
		Expect(f.ReadString("Section1", "Section1_Key2", "dflt")).To(Equal("Section1_Value2"))
		Expect(f.ReadString("Section1", "Missing", "dflt")).To(Equal("dflt"))
		Expect(f.ReadInt32("Section2", "Section2_Key3", 0)).To(Equal(int32(666)))
		Expect(f.ReadInt64("Section2", "Section2_Key3", 0)).To(Equal(int64(666)))
		Expect(f.ReadDouble("Section2", "Section2_Key3", 0)).To(Equal(666.0))
		Expect(f.ReadBool("Section2", "Section2_Key3", false)).To(BeFalse()) // 666 is not a bool
		Expect(f.SectionExists("Section2")).To(BeTrue())
		Expect(f.KeyExists("Section2", "Section2_Key1")).To(BeTrue())
		Expect(f.KeyExists("Section2", "Nope")).To(BeFalse())
	})

	It("normalizes whitespace around keys and values", func() {
		g := inifile.New()
		Expect(g.LoadString("[S]\n  Key1   =   Value1  \n")).To(Succeed())
		Expect(g.ReadString("S", "Key1", "")).To(Equal("Value1"))
		Expect(g.String()).To(Equal("[S]\nKey1=Value1\n"))
	})

	It("updates values in place, keeping surrounding lines", func() {
		Expect(f.Changed()).To(BeFalse())
		f.WriteString("Section1", "Section1_Key2", "NewValue")
		Expect(f.Changed()).To(BeTrue())
		Expect(f.String()).To(ContainSubstring("Section1_Key2=NewValue"))
		Expect(f.String()).To(ContainSubstring("; I am a comment in a section."))
		// untouched lines keep their order
		Expect(f.GetSections()).To(Equal([]string{"Section1", "Section2"}))
	})

	It("appends new keys after a section's last key", func() {
		f.WriteBool("Section2", "NewFlag", true)
		kvs := f.GetSection("Section2")
		Expect(kvs[len(kvs)-1]).To(Equal(inifile.KeyValue{Key: "NewFlag", Value: "1"}))
		Expect(f.ReadBool("Section2", "NewFlag", false)).To(BeTrue())
	})

	It("creates missing sections on write", func() {
		f.WriteInt32("Section3", "Answer", 42)
		f.WriteDouble("Section3", "Pi", 3.25)
		Expect(f.GetSections()).To(Equal([]string{"Section1", "Section2", "Section3"}))
		Expect(f.ReadInt32("Section3", "Answer", 0)).To(Equal(int32(42)))
		Expect(f.ReadDouble("Section3", "Pi", 0)).To(Equal(3.25))
	})

	It("erases keys and sections", func() {
		f.EraseKey("Section1", "Section1_Key2")
		Expect(f.KeyExists("Section1", "Section1_Key2")).To(BeFalse())
		Expect(f.GetSection("Section1")).To(HaveLen(2))

		f.EraseSection("Section2")
		Expect(f.SectionExists("Section2")).To(BeFalse())
		Expect(f.String()).NotTo(ContainSubstring("Section2"))

		f.EraseKeys("Section1")
		Expect(f.GetSection("Section1")).To(BeEmpty())
		Expect(f.SectionExists("Section1")).To(BeTrue())
	})

	It("rejects malformed input", func() {
		g := inifile.New()
		Expect(g.LoadString("[Unterminated\n")).NotTo(Succeed())
		Expect(g.LoadString("KeyOutsideSection=1\n")).NotTo(Succeed())
		Expect(g.LoadString("[S]\nNoEqualsSign\n")).NotTo(Succeed())
		Expect(g.LoadString("[S]\n[S]\n")).NotTo(Succeed())
		Expect(g.LoadString("[S]\nK=1\nK=2\n")).NotTo(Succeed())
	})

	It("round-trips through disk", func() {
		dir, err := os.MkdirTemp("", "inifile")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)

		path := filepath.Join(dir, "test.ini")
		Expect(os.WriteFile(path, []byte(sampleIni), 0o644)).To(Succeed())

		loaded, err := inifile.Load(path)
		Expect(err).NotTo(HaveOccurred())
		loaded.WriteString("Section1", "Section1_Key1", "Rewritten")
		Expect(loaded.UpdateFile()).To(Succeed())
		Expect(loaded.Changed()).To(BeFalse())

		again, err := inifile.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(again.ReadString("Section1", "Section1_Key1", "")).To(Equal("Rewritten"))
		Expect(again.String()).To(ContainSubstring("; I am an opening comment."))
	})

	It("notifies a watcher when the file changes", func() {
		dir, err := os.MkdirTemp("", "iniwatch")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)

		path := filepath.Join(dir, "watched.ini")
		Expect(os.WriteFile(path, []byte(sampleIni), 0o644)).To(Succeed())

		reloaded := make(chan *inifile.IniFile, 1)
		w, err := inifile.NewWatcher(path, func(f *inifile.IniFile) {
			select {
			case reloaded <- f:
			default:
			}
		})
		Expect(err).NotTo(HaveOccurred())
		defer w.Close()

		time.Sleep(50 * time.Millisecond) // watcher registration settles
		Expect(os.WriteFile(path, []byte("[S]\nK=1\n"), 0o644)).To(Succeed())

		var fresh *inifile.IniFile
		Eventually(reloaded, 3*time.Second).Should(Receive(&fresh))
		Expect(fresh.ReadInt32("S", "K", 0)).To(Equal(int32(1)))
	})
})
