// Package sandbox simulates the hosted payment gateway for local development
// and end-to-end tests.
package sandbox

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"securecheckout/internal/payment"
	"securecheckout/internal/pkg/utils"
)

// DeclineCardSuffix marks test card numbers the sandbox declines.
const DeclineCardSuffix = "0002"

var ErrSignatureMismatch = errors.New("sandbox: request signature mismatch")

var replyPage = template.Must(template.New("reply").Parse(`<!DOCTYPE html>
<html>
<head><title>Processing payment</title></head>
<body onload="document.forms[0].submit()">
<form id="gateway-reply" action="{{.Action}}" method="post">
{{range .Fields}}<input type="hidden" name="{{.Key}}" value="{{.Value}}">
{{end}}<noscript><button type="submit">Continue</button></noscript>
</form>
</body>
</html>
`))

// Gateway verifies signed authorization requests and answers with a signed reply
// that the payer's browser posts back to the merchant.
type Gateway struct {
	signer   *payment.Signer
	replyURL string
	now      func() time.Time
	logger   *zap.Logger
}

func NewGateway(signer *payment.Signer, replyURL string, logger *zap.Logger) *Gateway {
	return &Gateway{signer: signer, replyURL: replyURL, now: time.Now, logger: logger}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	fields := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		fields[k] = r.PostForm.Get(k)
	}

	reply, err := g.Reply(fields)
	if err != nil {
		g.logger.Warn("Sandbox rejected request", zap.String("reference", fields["reference_number"]), zap.Error(err))
		http.Error(w, "Access denied: signature mismatch", http.StatusForbidden)
		return
	}

	keys := make([]string, 0, len(reply))
	for k := range reply {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	page := struct {
		Action string
		Fields []payment.Field
	}{Action: g.replyURL}
	for _, k := range keys {
		page.Fields = append(page.Fields, payment.Field{Key: k, Value: reply[k]})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := replyPage.Execute(w, page); err != nil {
		g.logger.Error("Render sandbox reply", zap.Error(err))
	}
}

// Reply verifies a posted request and builds the signed reply for it.
func (g *Gateway) Reply(fields map[string]string) (map[string]string, error) {
	if err := g.signer.Verify(fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}

	reply := make(map[string]string)
	for k, v := range fields {
		switch k {
		case payment.FieldSignature, payment.FieldSignedFieldNames, payment.FieldUnsignedFieldNames, "card_number", "card_cvn":
			continue
		}
		reply["req_"+k] = v
	}
	card := fields["card_number"]
	reply["req_card_number"] = utils.MaskCardNumber(card)
	reply["transaction_id"] = utils.RandomDigits(22)
	reply["request_token"] = utils.RandomHex(32)

	if strings.HasSuffix(card, DeclineCardSuffix) {
		reply["decision"] = "DECLINE"
		reply["reason_code"] = "203"
		reply["message"] = "General decline of the card."
	} else {
		reply["decision"] = payment.DecisionAccept
		reply["reason_code"] = "100"
		reply["message"] = "Request was processed successfully."
		reply["auth_amount"] = fields["amount"]
		reply["auth_code"] = "888888"
		reply["auth_response"] = "100"
		reply["auth_time"] = g.now().UTC().Format("2006-01-02T150405Z")
		if strings.Contains(fields["transaction_type"], "create_payment_token") {
			reply["payment_token"] = utils.RandomDigits(22)
		}
	}
	reply[payment.FieldSignedDateTime] = g.now().UTC().Format(payment.SignedDateTimeLayout)

	names := make([]string, 0, len(reply)+1)
	for k := range reply {
		names = append(names, k)
	}
	sort.Strings(names)
	names = append(names, payment.FieldSignedFieldNames)
	reply[payment.FieldSignedFieldNames] = strings.Join(names, ",")

	sig, err := g.signer.Sign(reply, names)
	if err != nil {
		return nil, err
	}
	reply[payment.FieldSignature] = sig
	return reply, nil
}
