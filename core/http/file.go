package http

import (
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// doRequest resolves the parsed target under the document root and maps the
// file read-only. The mapping lives until the response is fully written.
func (c *Conn) doRequest() Code {
	target := c.req.URL
	if q := strings.IndexByte(target, '?'); q >= 0 {
		target = target[:q]
	}
	if target == "/" {
		target = "/" + c.env.DefaultPage
	}
	for _, seg := range strings.Split(target, "/") {
		if seg == ".." {
			return ForbiddenRequest
		}
	}
	c.realFile = filepath.Join(c.env.DocRoot, target)

	var st unix.Stat_t
	if err := unix.Stat(c.realFile, &st); err != nil {
		return NoResource
	}
	if st.Mode&unix.S_IROTH == 0 {
		return ForbiddenRequest
	}
	if st.Mode&unix.S_IFMT != unix.S_IFREG {
		// directories, fifos and devices are never served
		return ForbiddenRequest
	}

	c.fileSize = st.Size
	if st.Size == 0 {
		return FileRequest
	}

	fd, err := unix.Open(c.realFile, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		c.log.WithError(err).Warnf("open %s", c.realFile)
		return InternalError
	}
	defer unix.Close(fd)

	data, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		c.log.WithError(err).Warnf("mmap %s", c.realFile)
		return InternalError
	}
	c.file = data

	return FileRequest
}

// unmap releases the file mapping if there is one
func (c *Conn) unmap() {
	if c.file == nil {
		return
	}
	if err := unix.Munmap(c.file); err != nil {
		c.log.WithError(err).Warn("munmap")
	}
	c.file = nil
}
