package cite

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/juristools/stjsearch/internal/record"
)

func TestFormat_FullRecord(t *testing.T) {
	a := &record.Acordao{
		SiglaClasse:     "REsp",
		NumeroProcesso:  "1234567",
		MinistroRelator: "NANCY ANDRIGHI",
		OrgaoJulgador:   "TERCEIRA TURMA",
		DataDecisao:     "20200115",
		DataPublicacao:  "DJe DATA: 05/03/2020",
	}

	got := Format(a)
	assert.Equal(t,
		"(STJ., REsp n. 1.234.567, relator Ministro Nancy Andrighi, Terceira Turma, julgado em 15/1/2020, DJe de 5/3/2020).",
		got)
}

func TestFormat_MissingPiecesAreOmitted(t *testing.T) {
	a := &record.Acordao{
		SiglaClasse:    "AgInt",
		NumeroProcesso: "890",
	}

	got := Format(a)
	assert.Equal(t, "(STJ., AgInt n. 890).", got)
}

func TestFormat_NonNumericProcessNumber(t *testing.T) {
	a := &record.Acordao{SiglaClasse: "REsp", NumeroProcesso: "2015/0011223-3"}
	assert.Contains(t, Format(a), "REsp n. 2015/0011223-3")
}

func TestFormat_EmptyRecord(t *testing.T) {
	assert.Equal(t, "(STJ.).", Format(&record.Acordao{}))
}

func TestGroupDigits(t *testing.T) {
	assert.Equal(t, "1.234.567", groupDigits("1234567"))
	assert.Equal(t, "890", groupDigits("890"))
	assert.Equal(t, "12.345", groupDigits("0012345"))
}
