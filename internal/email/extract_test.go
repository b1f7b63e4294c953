package email

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensetracker/internal/domain"
)

func TestIsTransactionAlert(t *testing.T) {
	tests := []struct {
		name    string
		sender  string
		subject string
		want    bool
	}{
		{"bank sender with alert keyword", "HDFC Bank <alerts@hdfcbank.net>", "You have done a UPI txn. Check details!", true},
		{"bank sender with amount", "alerts@axisbank.com", "Rs. 450.00 spent", true},
		{"bank sender plain subject", "alerts@icicibank.com", "Monthly statement is ready", false},
		{"unknown sender with alert keyword", "shop@example.com", "debited", false},
		{"wallet sender", "noreply@paytm.com", "Payment Alert", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransactionAlert(tt.sender, tt.subject))
		})
	}
}

func TestIsPromotional(t *testing.T) {
	promo := "Grab incredible deals this weekend! Offer valid till Sunday. T&C apply. Unsubscribe here."
	assert.True(t, isPromotional(promo))

	noMarkers := "Dear customer, we have updated our privacy policy."
	assert.True(t, isPromotional(noMarkers))

	alert := "Rs.450.00 has been debited from your a/c XX1234 on 02-01-2024."
	assert.False(t, isPromotional(alert))

	// One promo phrase plus a real alert marker stays an alert.
	mixed := "Rs.450.00 debited from a/c XX1234. Unsubscribe from alerts here."
	assert.False(t, isPromotional(mixed))
}

func TestExtractAmount(t *testing.T) {
	tests := []struct {
		text string
		want float64
		ok   bool
	}{
		{"Rs.450.00 has been debited", 450.0, true},
		{"INR 1,23,456.78 credited to your account", 123456.78, true},
		{"₹99 spent on your card", 99.0, true},
		{"Payment of Rs 2500 received", 2500.0, true},
		{"no amount here", 0, false},
	}
	for _, tt := range tests {
		got, ok := extractAmount(tt.text)
		require.Equal(t, tt.ok, ok, tt.text)
		if ok {
			assert.InDelta(t, tt.want, got, 0.001, tt.text)
		}
	}
}

func TestDetermineType(t *testing.T) {
	// "payment received" matches two credit families and one debit family.
	assert.Equal(t, domain.Credit, determineType("Payment of Rs 5000 received for your credit card"))
	assert.Equal(t, domain.Debit, determineType("Rs.450 debited from your a/c for purchase"))
	// No pattern family fires at all; uncertainty stays debit.
	assert.Equal(t, domain.Debit, determineType("transaction processed"))
	assert.Equal(t, domain.Credit, determineType("Rs.9000.00 credited to your a/c via NEFT"))
}

func TestExtractDescriptionCascade(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			"axis transaction info",
			"Transaction Info: UPI/P2M/639743533859/CRED Club If this transaction was not done by you call us",
			"UPI/P2M/639743533859/CRED Club",
		},
		{
			"merchant name",
			"Merchant Name: SPOTIFY SI Axis Bank Credit Card",
			"SPOTIFY SI",
		},
		{
			"vpa with merchant",
			"debited from your a/c to VPA q394334523@ybl REAL VALUE MART on 02-01-24",
			"q394334523@ybl REAL VALUE MART",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractDescription(tt.text, "Transaction Alert"))
		})
	}
}

func TestExtractDescriptionSubjectFallback(t *testing.T) {
	got := extractDescription("nothing matches here", "Alert: Update on salary deposit")
	assert.Equal(t, "on salary deposit", got)
}

func TestExtractTransactionHDFCStyle(t *testing.T) {
	body := "Dear Customer, Rs.450.00 has been debited from account XX1234 " +
		"to VPA swiggy.bangalore@icici SWIGGY on 02-01-24. " +
		"Your UPI transaction reference number is 402912345678."
	txn, ok := extractTransaction(body, "You have done a UPI txn. Check details!", time.Time{})
	require.True(t, ok)

	assert.Equal(t, "2024-01-02", txn.Date.Format("2006-01-02"))
	assert.InDelta(t, 450.0, txn.Amount, 0.001)
	assert.Equal(t, domain.Debit, txn.Type)
	assert.Equal(t, domain.SourceBank, txn.Source)
	assert.Contains(t, txn.Description, "swiggy.bangalore@icici")
	assert.Equal(t, body, txn.EmailBody)
	assert.Equal(t, 1, txn.Month)
	assert.Equal(t, 2024, txn.Year)
}

func TestExtractTransactionCreditWithHeaderDateFallback(t *testing.T) {
	body := "Payment of Rs 12,000.00 received for your credit card ending 5678. Thank you."
	header := time.Date(2024, 2, 7, 18, 30, 0, 0, time.UTC)
	txn, ok := extractTransaction(body, "Payment Received", header)
	require.True(t, ok)

	assert.Equal(t, domain.Credit, txn.Type)
	assert.InDelta(t, 12000.0, txn.Amount, 0.001)
	assert.Equal(t, "2024-02-07", txn.Date.Format("2006-01-02"))
}

func TestExtractTransactionRejectsPromo(t *testing.T) {
	body := "Exciting offer! Cashback offer on Rs 500 spends. T&C apply. Unsubscribe."
	_, ok := extractTransaction(body, "Offers are live", time.Time{})
	assert.False(t, ok)
}

func TestExtractTransactionNoAmount(t *testing.T) {
	body := "A transaction was made on your account. Log in for details."
	_, ok := extractTransaction(body, "Transaction Alert", time.Now())
	assert.False(t, ok)
}

func TestExtractTransactionCapsStoredBody(t *testing.T) {
	body := "Rs.100 debited from a/c on 02-01-2024. " + strings.Repeat("x", 3000)
	txn, ok := extractTransaction(body, "Debit Alert", time.Time{})
	require.True(t, ok)
	assert.Len(t, txn.EmailBody, maxEmailBody)
}

func TestDedupe(t *testing.T) {
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	txns := []domain.Transaction{
		{Date: date, Amount: 450, Type: domain.Debit, Description: "SWIGGY BANGALORE"},
		{Date: date, Amount: 450, Type: domain.Debit, Description: "SWIGGY BANGALORE"},
		{Date: date, Amount: 450, Type: domain.Credit, Description: "SWIGGY BANGALORE"},
		{Date: date, Amount: 450.004, Type: domain.Debit, Description: "SWIGGY BANGALORE"},
	}
	got := dedupe(txns)
	// The amount key rounds to two decimals, so the 450.004 entry
	// collapses into the first.
	require.Len(t, got, 2)
	assert.Equal(t, domain.Debit, got[0].Type)
	assert.Equal(t, domain.Credit, got[1].Type)
}

func TestHTMLToText(t *testing.T) {
	src := `<html><head><style>.x{color:red}</style></head>
<body><p>Rs.450.00 <b>debited</b> from a/c</p>
<script>track()</script><div>on 02-01-2024</div></body></html>`
	got := htmlToText(src)
	assert.Equal(t, "Rs.450.00 debited from a/c on 02-01-2024", got)
	assert.NotContains(t, got, "track")
	assert.NotContains(t, got, "color")
}
