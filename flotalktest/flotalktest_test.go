package flotalktest

import (
	"testing"

	"github.com/flotalk/flotalk"
)

func TestBuilderAndProgramTestCase(t *testing.T) {
	ResetTestingContext()
	plus := flotalk.InternSelector(flotalk.Intern("+"))
	program := NewBuilder().
		Load(flotalk.NewInt(38)).
		Load(flotalk.NewInt(4)).
		Send(plus).
		Build()

	tc := ProgramTestCase{Program: program, Pass: PassInt(42)}
	tc.TestFunc()(t)
}

func TestPassError(t *testing.T) {
	ResetTestingContext()
	bogus := flotalk.InternUnarySelector("thisSelectorIsNotImplementedByAnything")
	program := NewBuilder().
		Load(flotalk.NewInt(1)).
		Send(bogus).
		Build()

	tc := ProgramTestCase{Program: program, Pass: PassError(flotalk.ErrMessageNotSupported)}
	tc.TestFunc()(t)
}

func TestPassNil(t *testing.T) {
	ResetTestingContext()
	program := NewBuilder().LoadNil().Build()
	tc := ProgramTestCase{Program: program, Pass: PassNil()}
	tc.TestFunc()(t)
}
