package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"securecheckout/internal/payment"
	"securecheckout/internal/pkg/httpclient"
)

var ErrGatewayRejected = errors.New("gateway rejected request")

// Card is the test card a simulated payer types into the gateway form.
type Card struct {
	Type   string
	Number string
	Expiry string
	CVN    string
}

// Form is an HTML form found in a gateway response.
type Form struct {
	Action string
	Fields map[string]string
}

// Client plays the payer's browser: it submits signed fields to the gateway and
// returns the reply form the gateway renders.
type Client struct {
	http *httpclient.Client
}

func NewClient() *Client {
	return &Client{http: httpclient.New().WithRetryCount(0).WithTimeout(15 * time.Second)}
}

// HTTPClient exposes the transport, mainly for tests.
func (c *Client) HTTPClient() *http.Client {
	return c.http.HTTPClient()
}

// Submit posts fields with the card filled in and parses the reply form.
func (c *Client) Submit(ctx context.Context, url string, fields []payment.Field, card Card) (*Form, error) {
	data := make(map[string]string, len(fields))
	for _, f := range fields {
		data[f.Key] = f.Value
	}
	data["card_type"] = card.Type
	data["card_number"] = card.Number
	data["card_expiry_date"] = card.Expiry
	data["card_cvn"] = card.CVN

	status, body, err := c.http.PostForm(ctx, url, data)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrGatewayRejected, status, strings.TrimSpace(string(body)))
	}
	return ParseForm(bytes.NewReader(body))
}

// ParseForm returns the first form in an HTML document with its named inputs.
func ParseForm(r io.Reader) (*Form, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var form *Form
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "form":
				if form == nil {
					form = &Form{Action: attr(n, "action"), Fields: make(map[string]string)}
				}
			case "input":
				if form != nil {
					if name := attr(n, "name"); name != "" {
						form.Fields[name] = attr(n, "value")
					}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	if form == nil {
		return nil, errors.New("no form in response")
	}
	return form, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
