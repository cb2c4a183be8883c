package indicator_test

import (
	"errors"
	"strconv"
	"testing"

	"github.com/okian/rankready/internal/domain/indicator"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseFloat(t *testing.T) {
	Convey("Given free-form indicator input", t, func() {
		Convey("When the value is a plain number", func() {
			So(indicator.ParseFloat("72.5"), ShouldEqual, 72.5)
		})

		Convey("When the value carries decoration", func() {
			So(indicator.ParseFloat("85%"), ShouldEqual, 85)
			So(indicator.ParseFloat(" 1,200 "), ShouldEqual, 1200)
			So(indicator.ParseFloat("-5"), ShouldEqual, 5)
		})

		Convey("When the value is not numeric", func() {
			So(indicator.ParseFloat("abc"), ShouldEqual, 0)
			So(indicator.ParseFloat(""), ShouldEqual, 0)
			So(indicator.ParseFloat("1.2.3"), ShouldEqual, 0)
			So(indicator.ParseFloat("."), ShouldEqual, 0)
		})
	})
}

func TestCatalog(t *testing.T) {
	Convey("Given the indicator catalog", t, func() {
		defs := indicator.Catalog()

		Convey("Then it lists every scored indicator", func() {
			So(defs, ShouldHaveLength, 9)
			So(defs[0].Code, ShouldEqual, indicator.AcademicReputation)
			So(indicator.Known(indicator.FacultyStudentRatio), ShouldBeTrue)
			So(indicator.Known("h_index"), ShouldBeFalse)
		})

		Convey("When the returned slice is modified", func() {
			defs[0].Code = "changed"

			Convey("Then the catalog is unaffected", func() {
				So(indicator.Catalog()[0].Code, ShouldEqual, indicator.AcademicReputation)
			})
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given indicator values from a form", t, func() {
		Convey("When every value is in range", func() {
			err := indicator.Validate(map[string]string{
				indicator.AcademicReputation: "88",
				indicator.IntlStudentRatio:   "0",
				indicator.EmploymentOutcomes: "",
			})
			So(err, ShouldBeNil)
		})

		Convey("When values are malformed or out of range", func() {
			err := indicator.Validate(map[string]string{
				indicator.AcademicReputation:  "abc",
				indicator.CitationsPerFaculty: "140",
				indicator.FacultyStudentRatio: "-1",
				"h_index":                     "10",
			})

			Convey("Then a field-level error is returned per code", func() {
				var ve *indicator.ValidationError
				So(errors.As(err, &ve), ShouldBeTrue)
				So(ve.Fields, ShouldHaveLength, 4)
				So(ve.Fields[indicator.AcademicReputation], ShouldEqual, "must be a number")
				So(ve.Fields[indicator.CitationsPerFaculty], ShouldEqual, "must be between 0 and 100")
				So(ve.Fields[indicator.FacultyStudentRatio], ShouldEqual, "must be between 0 and 100")
				So(ve.Fields["h_index"], ShouldEqual, "unknown indicator code")
				So(err.Error(), ShouldStartWith, "invalid indicator values: academic_reputation: must be a number")
			})
		})

		Convey("When values use notations the scorer cannot read back", func() {
			err := indicator.Validate(map[string]string{
				indicator.AcademicReputation:  "1e2",
				indicator.EmployerReputation:  "NaN",
				indicator.CitationsPerFaculty: "0x1p3",
				indicator.FacultyStudentRatio: "Inf",
				indicator.IntlFacultyRatio:    "+5",
				indicator.IntlResearchNetwork: "1e-05",
				indicator.IntlStudentRatio:    ".5",
				indicator.EmploymentOutcomes:  "42.",
			})

			Convey("Then only plain decimals are accepted", func() {
				var ve *indicator.ValidationError
				So(errors.As(err, &ve), ShouldBeTrue)
				So(ve.Fields, ShouldHaveLength, 6)
				for _, code := range []string{
					indicator.AcademicReputation, indicator.EmployerReputation, indicator.CitationsPerFaculty,
					indicator.FacultyStudentRatio, indicator.IntlFacultyRatio, indicator.IntlResearchNetwork,
				} {
					So(ve.Fields[code], ShouldEqual, "must be a number")
				}
			})
		})

		Convey("When every accepted value is read back by the scorer", func() {
			for _, raw := range []string{"0", "7", "42.5", ".5", "100", "99.999"} {
				So(indicator.Validate(map[string]string{indicator.AcademicReputation: raw}), ShouldBeNil)
				want, err := strconv.ParseFloat(raw, 64)
				So(err, ShouldBeNil)
				So(indicator.ParseFloat(raw), ShouldEqual, want)
			}
		})
	})
}
