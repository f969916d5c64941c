package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/juristools/stjsearch/internal/cite"
	"github.com/juristools/stjsearch/internal/record"
)

func init() {
	rootCmd.AddCommand(viewCmd)
}

var viewCmd = &cobra.Command{
	Use:   "view ID",
	Short: "Show the full details of one acórdão",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		a, ok, err := st.GetByID(cmd.Context(), id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("record not found: %s", id)
		}

		renderRecord(a)
		return nil
	},
}

func renderRecord(a *record.Acordao) {
	section("Ementa", a.Ementa)
	section("Citação", cite.Format(a))
	section("Decisão", a.Decisao)
	section("Informações Complementares", a.InformacoesComplementares)
	section("Tese Jurídica", a.TeseJuridica)
	section("Jurisprudência Citada", a.JurisprudenciaCitada)
	section("Notas", a.Notas)
	section("Termos Auxiliares", a.TermosAuxiliares)
	section("Referências Legislativas", a.ReferenciasLegislativas)
	if a.Tema != "" {
		fmt.Printf("Tema: %s\n\n", a.Tema)
	}

	fmt.Printf("%s - Processo %s\n", a.SiglaClasse, a.NumeroProcesso)
	pairs := []struct{ label, value string }{
		{"ID", a.ID},
		{"Documento", a.NumeroDocumento},
		{"Processo", a.NumeroProcesso},
		{"Registro", a.NumeroRegistro},
		{"Classe", a.DescricaoClasse},
		{"Classe Padronizada", a.ClassePadronizada},
		{"Órgão Julgador", a.OrgaoJulgador},
		{"Relator", a.MinistroRelator},
		{"Tipo Decisão", a.TipoDecisao},
		{"Data Decisão", a.DataDecisao},
		{"Data Publicação", a.DataPublicacao},
	}
	for _, p := range pairs {
		fmt.Printf("  %s: %s\n", p.label, p.value)
	}
}

// section prints a titled block, skipping empty content.
func section(title, body string) {
	if body == "" {
		return
	}
	fmt.Printf("== %s ==\n%s\n\n", title, body)
}
