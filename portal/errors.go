// Copyright (c) 2024 The Board of Trustees of the Leland Stanford Junior University
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package portal

import "fmt"

// indicates that a requested record doesn't exist on the portal
type NotFoundError struct {
	Id string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("The record %s was not found on the portal.", e.Id)
}

// indicates that the portal denied access to a resource (usually a botched
// API key or an attempt to view a record owned by another lab)
type ForbiddenError struct {
	Method, Id string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("Access to %s was forbidden (%s). Check your API keys and permissions.",
		e.Id, e.Method)
}

// indicates that a posted record collided with one already on the portal
// (the portal reports HTTP 409 when an identifying property is reused)
type ConflictError struct {
	Id string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("The record %s conflicts with one already on the portal.", e.Id)
}

// indicates a portal request that failed for reasons not covered by the
// more specific error types above
type RequestError struct {
	StatusCode  int
	Method, Url string
	Detail      string
}

func (e RequestError) Error() string {
	return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.Url,
		e.StatusCode, e.Detail)
}

// indicates that a request was redirected from HTTPS to HTTP
type DowngradedRedirectError struct {
	Endpoint string
}

func (e DowngradedRedirectError) Error() string {
	return fmt.Sprintf("A request to %s was redirected from HTTPS to HTTP!", e.Endpoint)
}
