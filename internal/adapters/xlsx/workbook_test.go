package xlsx

import (
	"bytes"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, sheets map[string][][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	first := true
	for name, rows := range sheets {
		if first {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				t.Fatalf("renaming sheet: %v", err)
			}
			first = false
		} else {
			if _, err := f.NewSheet(name); err != nil {
				t.Fatalf("adding sheet: %v", err)
			}
		}
		for i, row := range rows {
			cell, _ := excelize.CoordinatesToCellName(1, i+1)
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				t.Fatalf("writing row: %v", err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("serializing workbook: %v", err)
	}
	return buf
}

func TestRead(t *testing.T) {
	Convey("Given a complete workbook", t, func() {
		buf := buildWorkbook(t, map[string][][]interface{}{
			SheetPAP: {
				{"Character", "Player", "PAP", "Strategic PAP"},
				{"Pilot One", "<color=0xFFFF0000>Alpha</color>", 4, 1.5},
				{"Pilot Two", "", 2, 0},
				{"", "Ghost", 9, 9}, // no character, skipped
			},
			SheetBounty: {
				{"Character", "Tax"},
				{"Pilot One", "1,234,567.5"},
			},
			SheetMining: {
				{"Character", "Main Character", "Volume"},
				{"Miner Alt", "Pilot One", 90000},
				{"Miner Alt", "", "not-a-number"},
			},
		})

		Convey("all three sheets parse into typed rows", func() {
			wb, err := Read(buf)
			So(err, ShouldBeNil)

			So(wb.PAP, ShouldHaveLength, 2)
			So(wb.PAP[0].CharacterName, ShouldEqual, "Pilot One")
			So(wb.PAP[0].PlayerTitle, ShouldEqual, "<color=0xFFFF0000>Alpha</color>")
			So(wb.PAP[0].PAPPoints, ShouldAlmostEqual, 4)
			So(wb.PAP[0].StrategicPAP, ShouldAlmostEqual, 1.5)
			So(wb.PAP[1].PlayerTitle, ShouldEqual, "")

			So(wb.Bounty, ShouldHaveLength, 1)
			So(wb.Bounty[0].TaxISK, ShouldAlmostEqual, 1234567.5)

			So(wb.Mining, ShouldHaveLength, 2)
			So(wb.Mining[0].VolumeM3, ShouldAlmostEqual, 90000)
			So(wb.Mining[0].MainCharacter, ShouldEqual, "Pilot One")
			So(wb.Mining[1].VolumeM3, ShouldEqual, 0)
		})
	})

	Convey("Given defective workbooks", t, func() {
		Convey("a missing sheet is reported", func() {
			buf := buildWorkbook(t, map[string][][]interface{}{
				SheetPAP: {{"Character", "Player", "PAP", "Strategic PAP"}},
			})
			_, err := Read(buf)
			So(errors.Is(err, ErrMissingSheet), ShouldBeTrue)
		})

		Convey("a missing column is reported with its name", func() {
			buf := buildWorkbook(t, map[string][][]interface{}{
				SheetPAP:    {{"Character", "Player", "PAP", "Strategic PAP"}},
				SheetBounty: {{"Character"}},
				SheetMining: {{"Character", "Volume"}},
			})
			_, err := Read(buf)
			So(errors.Is(err, ErrMissingColumn), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "Tax")
		})

		Convey("a mining sheet without the optional main column still parses", func() {
			buf := buildWorkbook(t, map[string][][]interface{}{
				SheetPAP:    {{"Character", "Player", "PAP", "Strategic PAP"}},
				SheetBounty: {{"Character", "Tax"}},
				SheetMining: {
					{"Character", "Volume"},
					{"Solo Miner", 1200},
				},
			})
			wb, err := Read(buf)
			So(err, ShouldBeNil)
			So(wb.Mining, ShouldHaveLength, 1)
			So(wb.Mining[0].MainCharacter, ShouldEqual, "")
		})

		Convey("garbage bytes fail to open", func() {
			_, err := Read(bytes.NewReader([]byte("definitely not a zip")))
			So(err, ShouldNotBeNil)
		})
	})
}
