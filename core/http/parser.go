package http

import (
	"bytes"
	"strconv"

	"golang.org/x/net/http/httpguts"
)

var (
	methodGet    = []byte("GET")
	version11    = []byte("HTTP/1.1")
	schemeHTTP   = []byte("http://")
	hdrConn      = []byte("Connection:")
	hdrLength    = []byte("Content-Length:")
	hdrHost      = []byte("Host:")
	spaceAndTabs = " \t"
)

// parseLine scans from checkedIdx for a CRLF. On LineOK the terminator is
// zeroed in place and checkedIdx points just past it.
func (c *Conn) parseLine() LineStatus {
	for ; c.checkedIdx < c.readIdx; c.checkedIdx++ {
		switch c.readBuf[c.checkedIdx] {
		case '\r':
			if c.checkedIdx+1 == c.readIdx {
				return LineOpen
			}
			if c.readBuf[c.checkedIdx+1] == '\n' {
				c.readBuf[c.checkedIdx] = 0
				c.readBuf[c.checkedIdx+1] = 0
				c.checkedIdx += 2
				return LineOK
			}
			return LineBad
		case '\n':
			if c.checkedIdx > 0 && c.readBuf[c.checkedIdx-1] == '\r' {
				c.readBuf[c.checkedIdx-1] = 0
				c.readBuf[c.checkedIdx] = 0
				c.checkedIdx++
				return LineOK
			}
			return LineBad
		}
	}
	return LineOpen
}

// processRead runs the request machine over everything buffered so far.
// Several complete lines are consumed in one call.
func (c *Conn) processRead() Code {
	for {
		if c.state == StateContent {
			if c.parseContent() == GetRequest {
				return c.doRequest()
			}
			return NoRequest
		}

		switch c.parseLine() {
		case LineOpen:
			return NoRequest
		case LineBad:
			return BadRequest
		}

		text := c.readBuf[c.startLine : c.checkedIdx-2]
		c.startLine = c.checkedIdx

		switch c.state {
		case StateRequestLine:
			if c.parseRequestLine(text) == BadRequest {
				return BadRequest
			}
		case StateHeader:
			switch c.parseHeaders(text) {
			case BadRequest:
				return BadRequest
			case GetRequest:
				return c.doRequest()
			}
		}
	}
}

// parseRequestLine handles "METHOD SP TARGET SP VERSION"
func (c *Conn) parseRequestLine(text []byte) Code {
	sp := bytes.IndexAny(text, spaceAndTabs)
	if sp < 0 {
		return BadRequest
	}
	method := text[:sp]
	if !bytes.EqualFold(method, methodGet) {
		return BadRequest
	}
	c.req.Method = "GET"

	rest := bytes.TrimLeft(text[sp+1:], spaceAndTabs)
	sp = bytes.IndexAny(rest, spaceAndTabs)
	if sp < 0 {
		return BadRequest
	}
	target := rest[:sp]
	version := bytes.TrimLeft(rest[sp+1:], spaceAndTabs)
	if !bytes.EqualFold(version, version11) {
		return BadRequest
	}
	c.req.Version = string(version)

	if len(target) >= len(schemeHTTP) && bytes.EqualFold(target[:len(schemeHTTP)], schemeHTTP) {
		target = target[len(schemeHTTP):]
		slash := bytes.IndexByte(target, '/')
		if slash < 0 {
			return BadRequest
		}
		target = target[slash:]
	}
	if len(target) == 0 || target[0] != '/' {
		return BadRequest
	}
	c.req.URL = string(target)

	c.state = StateHeader
	return NoRequest
}

// parseHeaders handles one header line; an empty line ends the header block
func (c *Conn) parseHeaders(text []byte) Code {
	if len(text) == 0 {
		if c.req.ContentLength > 0 {
			if c.req.ContentLength > int64(len(c.readBuf)-c.checkedIdx) {
				// the body can never fit in the read buffer
				return BadRequest
			}
			c.state = StateContent
			return NoRequest
		}
		return GetRequest
	}

	switch {
	case hasPrefixFold(text, hdrConn):
		value := headerValue(text, hdrConn)
		c.req.Connection = string(value)
		if httpguts.HeaderValuesContainsToken([]string{c.req.Connection}, "keep-alive") {
			c.req.Linger = true
		}
	case hasPrefixFold(text, hdrLength):
		n, err := strconv.ParseInt(string(headerValue(text, hdrLength)), 10, 64)
		if err != nil || n < 0 {
			return BadRequest
		}
		c.req.ContentLength = n
	case hasPrefixFold(text, hdrHost):
		c.req.Host = string(headerValue(text, hdrHost))
	default:
		c.log.Debugf("ignoring unknown header %q", text)
	}

	return NoRequest
}

// parseContent reports whether the declared body is fully buffered.
// The body bytes are kept but not interpreted.
func (c *Conn) parseContent() Code {
	if int64(c.readIdx-c.checkedIdx) < c.req.ContentLength {
		return NoRequest
	}
	c.req.Body = c.readBuf[c.checkedIdx : c.checkedIdx+int(c.req.ContentLength)]
	return GetRequest
}

func hasPrefixFold(text, prefix []byte) bool {
	return len(text) >= len(prefix) && bytes.EqualFold(text[:len(prefix)], prefix)
}

func headerValue(text, name []byte) []byte {
	return bytes.Trim(text[len(name):], spaceAndTabs)
}
