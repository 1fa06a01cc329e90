package idempotency

import (
	"bytes"
	"net/http"
)

// responseCapture buffers a handler's response so it can be stored before
// anything reaches the client.
type responseCapture struct {
	parent http.ResponseWriter
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseCapture(parent http.ResponseWriter) *responseCapture {
	return &responseCapture{parent: parent, header: make(http.Header)}
}

func (c *responseCapture) Header() http.Header {
	return c.header
}

// WriteHeader keeps the first status, like net/http does.
func (c *responseCapture) WriteHeader(status int) {
	if c.status == 0 && status > 0 {
		c.status = status
	}
}

func (c *responseCapture) Write(data []byte) (int, error) {
	c.WriteHeader(http.StatusOK)
	return c.body.Write(data)
}

func (c *responseCapture) Status() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func (c *responseCapture) Body() []byte {
	if c.body.Len() == 0 {
		return nil
	}
	return bytes.Clone(c.body.Bytes())
}

func (c *responseCapture) flush() error {
	dst := c.parent.Header()
	for name, values := range c.header {
		dst[name] = append([]string(nil), values...)
	}
	c.parent.WriteHeader(c.Status())
	if c.body.Len() == 0 {
		return nil
	}
	_, err := c.parent.Write(c.body.Bytes())
	return err
}
