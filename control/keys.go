package control

import "fmt"

// kv 中的 key 布局，与论坛插件已有的数据保持一致
const coursesKey = "courses:list"

func lecturerKey(courseSection, name string) string {
	return fmt.Sprintf("lecturer:%s:%s", courseSection, name)
}

func lecturerIndexKey(courseSection string) string {
	return "lecturers:" + courseSection
}

func ballotKey(courseSection, name string) string {
	return fmt.Sprintf("lecturer:votes:%s:%s", courseSection, name)
}
