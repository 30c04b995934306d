package source

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vpnda/bankpoll/pkg/models"
)

var demoLabels = [][2]string{
	{"Café Moxka", "Petit expresso rapido Café Moxka"},
	{"MerBnB", "Paiement en ligne MerBNB"},
	{"Rapide PSC", "Paiement sans contact Rapide"},
	{"FNAK", "FNAK CB blabla"},
	{"Polyprix CB", "Courses chez Polyprix"},
	{"PRLV UJC", "PRLV UJC"},
	{"CB Spotifaille", "CB Spotifaille London"},
	{"Indirect Energie", "ESPA Indirect Energie SARL"},
	{"", "VIR Mr Jean Claude Dusse"},
	{"Glagla Frigidaire", "CB GLAGLA FRIGIDAIRE"},
	{"NOGO Sport", "CB NOGO Sport"},
}

var demoLabelsPositive = [][2]string{
	{"VIR Nuage Douillet", "VIR Nuage Douillet REFERENCE Salaire"},
	{"Impots", "Remboursement impots en votre faveur"},
	{"Case départ", "Passage par la case depart"},
}

// DemoSource generates plausible data without any backend. The output only
// depends on the access and the current day.
type DemoSource struct {
	now func() time.Time
}

func NewDemoSource() *DemoSource {
	return &DemoSource{now: time.Now}
}

func (s *DemoSource) Name() string { return "demo" }

func (s *DemoSource) Test(context.Context) bool { return true }

func (s *DemoSource) Version(context.Context, bool) string { return DefaultMinVersion }

func (s *DemoSource) UpdateModules(context.Context) error { return nil }

func demoAccountNumbers(access *models.Access) []string {
	h := fnv.New32a()
	h.Write([]byte(access.ModuleID))
	h.Write([]byte(access.Login))
	base := fmt.Sprintf("%08d", h.Sum32()%100000000)

	numbers := []string{base + "1", base + "2", base + "3"}
	if h.Sum32()%5 == 0 {
		numbers = append(numbers, base+"4")
	}
	return numbers
}

func (s *DemoSource) rng(access *models.Access, salt string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(access.ModuleID))
	h.Write([]byte(access.Login))
	h.Write([]byte(salt))
	day := uint64(s.now().UTC().Truncate(24 * time.Hour).Unix())
	return rand.New(rand.NewPCG(h.Sum64(), day))
}

func (s *DemoSource) FetchAccounts(_ context.Context, access *models.Access, _ FetchOptions) ([]models.FetchedAccount, error) {
	if access.Password == "" {
		return nil, NewError(models.ErrNoPassword, "no password set for access "+access.ID)
	}
	r := s.rng(access, "accounts")
	numbers := demoAccountNumbers(access)

	accounts := []models.FetchedAccount{
		{
			AccountNumber: numbers[0],
			Label:         "Compte chèque",
			Balance:       decimal.NewFromInt(int64(r.IntN(15000))).Shift(-2),
			Currency:      "EUR",
			IBAN:          "235711131719",
		},
		{AccountNumber: numbers[1], Label: "Livret A", Balance: decimal.NewFromInt(500), Currency: "USD"},
		{AccountNumber: numbers[2], Label: "Plan Epargne Logement", Balance: decimal.Zero},
	}
	if len(numbers) > 3 {
		accounts = append(accounts, models.FetchedAccount{
			AccountNumber: numbers[3],
			Label:         "Assurance vie",
			Balance:       decimal.NewFromInt(1000),
		})
	}
	return accounts, nil
}

func (s *DemoSource) FetchTransactions(_ context.Context, access *models.Access, _ FetchOptions) ([]models.FetchedTransaction, error) {
	if access.Password == "" {
		return nil, NewError(models.ErrNoPassword, "no password set for access "+access.ID)
	}
	r := s.rng(access, "transactions")
	numbers := demoAccountNumbers(access)
	now := s.now().UTC()

	pickAccount := func() string {
		switch n := r.IntN(100); {
		case n < 90:
			return numbers[0]
		case n < 95:
			return numbers[1]
		default:
			return numbers[2]
		}
	}

	count := 5 + r.IntN(4)
	txs := make([]models.FetchedTransaction, 0, count+2)
	for range count {
		date := time.Date(now.Year(), now.Month(), 1+r.IntN(now.Day()), 0, 0, 0, 0, time.UTC)
		txType := models.TransactionTypeFromCode(r.IntN(10))

		var labels [2]string
		var cents int64
		if r.IntN(100) < 15 {
			labels = demoLabelsPositive[r.IntN(len(demoLabelsPositive))]
			cents = int64(10000 + r.IntN(70000))
		} else {
			labels = demoLabels[r.IntN(len(demoLabels))]
			cents = -int64(r.IntN(6000))
		}

		tx := models.FetchedTransaction{
			AccountNumber: pickAccount(),
			Amount:        decimal.NewFromInt(cents).Shift(-2),
			Title:         labels[0],
			Raw:           labels[1],
			Date:          date.Format(time.RFC3339),
			Type:          txType,
		}
		if r.IntN(100) > 90 {
			tx.Binary = &models.Attachment{FileName: "__dev_example_file"}
		}
		txs = append(txs, tx)
	}

	// always the same amount one day apart, to exercise duplicate detection
	dupDate := time.Date(2020, 5, 4, 0, 0, 0, 0, time.UTC)
	if r.IntN(2) == 1 {
		dupDate = dupDate.AddDate(0, 0, 1)
	}
	txs = append(txs, models.FetchedTransaction{
		AccountNumber: numbers[0],
		Amount:        decimal.RequireFromString("13.37"),
		Title:         "This is a duplicate transaction",
		Raw:           "This is a duplicate transaction",
		Date:          dupDate.Format(time.RFC3339),
	})

	log.Info().Str("access", access.ID).Int("count", len(txs)).Msg("Generated demo transactions")
	return txs, nil
}
