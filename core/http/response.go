package http

import "strconv"

const contentType = "text/html"

// Canned titles and bodies for each response the server can produce
const (
	ok200Title    = "OK"
	error400Title = "Bad Request"
	error400Form  = "Your request has bad syntax or is inherently impossible to satisfy.\n"
	error403Title = "Forbidden"
	error403Form  = "You do not have permission to get file from this server.\n"
	error404Title = "Not Found"
	error404Form  = "The requested file was not found on this server.\n"
	error500Title = "Internal Error"
	error500Form  = "There was an unusual problem serving the requested file.\n"
	emptyPage     = "<html><body></body></html>"
)

// add copies s into the write buffer. Running out of room fails the whole
// response; the buffer is never truncated silently.
func (c *Conn) add(s string) bool {
	if len(s) > len(c.writeBuf)-c.writeIdx {
		return false
	}
	c.writeIdx += copy(c.writeBuf[c.writeIdx:], s)
	return true
}

func (c *Conn) addInt(n int64) bool {
	var num [20]byte
	b := strconv.AppendInt(num[:0], n, 10)
	if len(b) > len(c.writeBuf)-c.writeIdx {
		return false
	}
	c.writeIdx += copy(c.writeBuf[c.writeIdx:], b)
	return true
}

func (c *Conn) addStatusLine(status int, title string) bool {
	c.status = status
	return c.add("HTTP/1.1 ") && c.addInt(int64(status)) && c.add(" ") && c.add(title) && c.add("\r\n")
}

func (c *Conn) addHeaders(contentLen int64) bool {
	return c.addContentType() && c.addContentLength(contentLen) && c.addLinger() && c.addBlankLine()
}

func (c *Conn) addContentType() bool {
	return c.add("Content-Type: ") && c.add(contentType) && c.add("\r\n")
}

func (c *Conn) addContentLength(n int64) bool {
	return c.add("Content-Length: ") && c.addInt(n) && c.add("\r\n")
}

func (c *Conn) addLinger() bool {
	if c.req.Linger {
		return c.add("Connection: keep-alive\r\n")
	}
	return c.add("Connection: close\r\n")
}

func (c *Conn) addBlankLine() bool {
	return c.add("\r\n")
}

func (c *Conn) addCanned(status int, title, form string) bool {
	return c.addStatusLine(status, title) && c.addHeaders(int64(len(form))) && c.add(form)
}

// processWrite composes the response for code into the write buffer and
// arms the scatter-gather list. It returns false if the response does not fit.
func (c *Conn) processWrite(code Code) bool {
	c.writeIdx = 0
	c.iv[0], c.iv[1] = nil, nil
	c.ivCount = 0

	switch code {
	case InternalError:
		c.req.Linger = false
		if !c.addCanned(500, error500Title, error500Form) {
			return false
		}
	case BadRequest:
		c.req.Linger = false
		if !c.addCanned(400, error400Title, error400Form) {
			return false
		}
	case ForbiddenRequest:
		if !c.addCanned(403, error403Title, error403Form) {
			return false
		}
	case NoResource:
		if !c.addCanned(404, error404Title, error404Form) {
			return false
		}
	case FileRequest:
		if !c.addStatusLine(200, ok200Title) {
			return false
		}
		if c.fileSize > 0 {
			if !c.addHeaders(c.fileSize) {
				return false
			}
			c.iv[0] = c.writeBuf[:c.writeIdx]
			c.iv[1] = c.file
			c.ivCount = 2
			c.bytesToSend = c.writeIdx + len(c.file)
			return true
		}
		if !c.addHeaders(int64(len(emptyPage))) || !c.add(emptyPage) {
			return false
		}
	default:
		return false
	}

	c.iv[0] = c.writeBuf[:c.writeIdx]
	c.ivCount = 1
	c.bytesToSend = c.writeIdx
	return true
}
