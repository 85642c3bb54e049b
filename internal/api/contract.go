package api

import (
	"context"
	_ "embed"
	stderrors "errors"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"

	"github.com/on-cure/oncare/internal/errors"
)

//go:embed openapi.yaml
var contractSpec []byte

// ContractDocument returns the embedded OpenAPI document describing the
// backend endpoints this client consumes.
func ContractDocument() []byte {
	out := make([]byte, len(contractSpec))
	copy(out, contractSpec)
	return out
}

// Contract validates backend responses against the embedded OpenAPI
// document.
type Contract struct {
	doc    *openapi3.T
	router routers.Router
}

// LoadContract parses and validates the embedded document and binds it to
// the backend at baseURL.
func LoadContract(ctx context.Context, baseURL string) (*Contract, error) {
	return loadContract(ctx, contractSpec, baseURL)
}

func loadContract(ctx context.Context, data []byte, baseURL string) (*Contract, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigLoad, "failed to load API contract", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigLoad, "API contract is invalid", err)
	}

	doc.Servers = openapi3.Servers{{URL: baseURL}}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigLoad, "failed to build contract router", err)
	}

	return &Contract{doc: doc, router: router}, nil
}

// Operations returns the number of operations in the contract.
func (c *Contract) Operations() int {
	n := 0
	for _, item := range c.doc.Paths.Map() {
		n += len(item.Operations())
	}
	return n
}

// ValidateResponse checks one response. Requests to paths the contract does
// not describe, and statuses it does not declare, pass unchecked.
func (c *Contract) ValidateResponse(ctx context.Context, req *http.Request, status int, header http.Header, body []byte) error {
	route, pathParams, err := c.router.FindRoute(req)
	if err != nil {
		if stderrors.Is(err, routers.ErrPathNotFound) || stderrors.Is(err, routers.ErrMethodNotAllowed) {
			return nil
		}
		return errors.ContractViolation(req.Method+" "+req.URL.Path, err)
	}

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: pathParams,
			Route:      route,
		},
		Status: status,
		Header: header,
		Options: &openapi3filter.Options{
			MultiError: true,
		},
	}
	input.SetBodyBytes(body)

	if err := openapi3filter.ValidateResponse(ctx, input); err != nil {
		return errors.ContractViolation(req.Method+" "+route.Path, err).WithStatus(status)
	}
	return nil
}
